package identity

import (
	"go.uber.org/zap"

	"github.com/septivank/compost-logbook/internal/db"
	"github.com/septivank/compost-logbook/internal/privacy"
)

// Decrypter opens stored email ciphertexts
type Decrypter interface {
	Decrypt(ciphertext string) (string, error)
}

// Mapping links anonymous devices to the emails seen on them
type Mapping struct {
	EmailToDevices map[string]map[string]struct{}
	DeviceToEmail  map[string]string
}

// Resolver builds identity mappings and counts unique users
type Resolver struct {
	decrypter Decrypter
	logger    *zap.Logger
}

// NewResolver creates a new identity resolver
func NewResolver(decrypter Decrypter, logger *zap.Logger) *Resolver {
	return &Resolver{
		decrypter: decrypter,
		logger:    logger,
	}
}

// BuildMapping scans logs in the given order. The first email seen for a
// device is kept; later emails on the same device only extend EmailToDevices.
func (r *Resolver) BuildMapping(logs []db.LogEntry) Mapping {
	m := Mapping{
		EmailToDevices: make(map[string]map[string]struct{}),
		DeviceToEmail:  make(map[string]string),
	}

	for i := range logs {
		log := &logs[i]
		if log.DeviceID == "" {
			continue
		}
		email := r.email(log)
		if email == "" {
			continue
		}

		devices, ok := m.EmailToDevices[email]
		if !ok {
			devices = make(map[string]struct{})
			m.EmailToDevices[email] = devices
		}
		devices[log.DeviceID] = struct{}{}

		if _, seen := m.DeviceToEmail[log.DeviceID]; !seen {
			m.DeviceToEmail[log.DeviceID] = email
		}
	}

	return m
}

// Emails maps stored email ciphertexts to their normalized plaintext.
// Ciphertexts that could not be opened map to "".
type Emails map[string]string

// DecryptEmails opens every distinct ciphertext in logs once
func (r *Resolver) DecryptEmails(logs []db.LogEntry) Emails {
	emails := make(Emails)
	for i := range logs {
		ct := logs[i].EmailCiphertext
		if ct == "" {
			continue
		}
		if _, ok := emails[ct]; ok {
			continue
		}
		emails[ct] = r.email(&logs[i])
	}
	return emails
}

// CountUniqueUsers counts distinct emails plus distinct devices that could
// not be tied to any email
func (r *Resolver) CountUniqueUsers(logs []db.LogEntry, deviceToEmail map[string]string) int {
	return r.CountWithEmails(logs, r.DecryptEmails(logs), deviceToEmail)
}

// CountWithEmails is CountUniqueUsers over emails decrypted beforehand.
// emails must cover every ciphertext in logs.
func (r *Resolver) CountWithEmails(logs []db.LogEntry, emails Emails, deviceToEmail map[string]string) int {
	known := make(map[string]struct{})
	anonymous := make(map[string]struct{})

	for i := range logs {
		log := &logs[i]
		if log.DeviceID == "" {
			continue
		}

		email := emails[log.EmailCiphertext]
		if email == "" {
			email = deviceToEmail[log.DeviceID]
		}

		if email != "" {
			known[email] = struct{}{}
		} else {
			anonymous[log.DeviceID] = struct{}{}
		}
	}

	return len(known) + len(anonymous)
}

// MaskedEmail returns the display form of a log's email: masked when it
// decrypts, privacy.EncryptedLabel when it does not, privacy.AnonymousLabel
// when there is none
func (r *Resolver) MaskedEmail(log *db.LogEntry) string {
	if log.EmailCiphertext == "" {
		return privacy.AnonymousLabel
	}
	email := r.email(log)
	if email == "" {
		return privacy.EncryptedLabel
	}
	return privacy.MaskEmail(email)
}

// email returns the normalized plaintext email of a log, or "" when there
// is none or it cannot be decrypted
func (r *Resolver) email(log *db.LogEntry) string {
	if log.EmailCiphertext == "" {
		return ""
	}
	plain, err := r.decrypter.Decrypt(log.EmailCiphertext)
	if err != nil {
		r.logger.Debug("treating undecryptable email as absent",
			zap.Int64("log_id", log.ID),
			zap.Error(err),
		)
		return ""
	}
	return privacy.NormalizeEmail(plain)
}

package credentials

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	file "github.com/kyma-incubator/alerting-reconciler/pkg/files"
)

// Placeholder marks a credential which was not supplied by an operator yet.
const Placeholder = "CHANGE_ME"

const (
	KeySMTPPassword            = "smtp-password"
	KeyPagerDutyCriticalKey    = "pagerduty-critical-key"
	KeyPagerDutyPlatformKey    = "pagerduty-platform-key"
	KeyPagerDutyApplicationKey = "pagerduty-application-key"
	KeySlackWebhookURL         = "slack-webhook-url"
	KeyTeamsWebhookURL         = "teams-webhook-url"
	KeyDiscordWebhookURL       = "discord-webhook-url"
)

// Credentials are the notification channel secrets maintained by an operator
// in a local dotenv file. Chat webhooks are optional, an empty URL disables the provider.
type Credentials struct {
	SMTPPassword            string `mapstructure:"smtp_password"`
	PagerDutyCriticalKey    string `mapstructure:"pagerduty_critical_key"`
	PagerDutyPlatformKey    string `mapstructure:"pagerduty_platform_key"`
	PagerDutyApplicationKey string `mapstructure:"pagerduty_application_key"`
	SlackWebhookURL         string `mapstructure:"slack_webhook_url"`
	TeamsWebhookURL         string `mapstructure:"teams_webhook_url"`
	DiscordWebhookURL       string `mapstructure:"discord_webhook_url"`
}

func Placeholders() Credentials {
	return Credentials{
		SMTPPassword:            Placeholder,
		PagerDutyCriticalKey:    Placeholder,
		PagerDutyPlatformKey:    Placeholder,
		PagerDutyApplicationKey: Placeholder,
		SlackWebhookURL:         "https://hooks.slack.com/services/" + Placeholder,
		TeamsWebhookURL:         "https://example.webhook.office.com/webhookb2/" + Placeholder,
		DiscordWebhookURL:       "https://discord.com/api/webhooks/" + Placeholder,
	}
}

// IsPlaceholder is true if at least one credential still carries a placeholder value.
func (c Credentials) IsPlaceholder() bool {
	for _, value := range c.values() {
		if strings.Contains(value, Placeholder) {
			return true
		}
	}
	return false
}

func (c Credentials) SecretData() map[string]string {
	return c.values()
}

func FromSecretData(data map[string][]byte) Credentials {
	return Credentials{
		SMTPPassword:            string(data[KeySMTPPassword]),
		PagerDutyCriticalKey:    string(data[KeyPagerDutyCriticalKey]),
		PagerDutyPlatformKey:    string(data[KeyPagerDutyPlatformKey]),
		PagerDutyApplicationKey: string(data[KeyPagerDutyApplicationKey]),
		SlackWebhookURL:         string(data[KeySlackWebhookURL]),
		TeamsWebhookURL:         string(data[KeyTeamsWebhookURL]),
		DiscordWebhookURL:       string(data[KeyDiscordWebhookURL]),
	}
}

func (c Credentials) values() map[string]string {
	return map[string]string{
		KeySMTPPassword:            c.SMTPPassword,
		KeyPagerDutyCriticalKey:    c.PagerDutyCriticalKey,
		KeyPagerDutyPlatformKey:    c.PagerDutyPlatformKey,
		KeyPagerDutyApplicationKey: c.PagerDutyApplicationKey,
		KeySlackWebhookURL:         c.SlackWebhookURL,
		KeyTeamsWebhookURL:         c.TeamsWebhookURL,
		KeyDiscordWebhookURL:       c.DiscordWebhookURL,
	}
}

func (c Credentials) validate() error {
	required := map[string]string{
		"SMTP_PASSWORD":             c.SMTPPassword,
		"PAGERDUTY_CRITICAL_KEY":    c.PagerDutyCriticalKey,
		"PAGERDUTY_PLATFORM_KEY":    c.PagerDutyPlatformKey,
		"PAGERDUTY_APPLICATION_KEY": c.PagerDutyApplicationKey,
	}
	for key, value := range required {
		if value == "" {
			return fmt.Errorf("credential '%s' is missing", key)
		}
	}

	webhooks := map[string]string{
		"SLACK_WEBHOOK_URL":   c.SlackWebhookURL,
		"TEAMS_WEBHOOK_URL":   c.TeamsWebhookURL,
		"DISCORD_WEBHOOK_URL": c.DiscordWebhookURL,
	}
	for key, value := range webhooks {
		if value == "" {
			continue
		}
		u, err := url.Parse(value)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("credential '%s' is not a valid http(s) URL", key)
		}
	}
	return nil
}

// Load reads and validates a credentials file.
func Load(path string) (Credentials, error) {
	var creds Credentials

	if !file.Exists(path) {
		return creds, fmt.Errorf("credentials file '%s' not found", path)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return creds, errors.Wrapf(err, "failed to read credentials file '%s'", path)
	}
	if err := mapstructure.Decode(v.AllSettings(), &creds); err != nil {
		return creds, errors.Wrapf(err, "failed to decode credentials file '%s'", path)
	}
	if err := creds.validate(); err != nil {
		return creds, errors.Wrapf(err, "invalid credentials file '%s'", path)
	}
	return creds, nil
}

// WriteTemplate creates a credentials file with placeholder values.
// An existing file is left untouched and reported with os.ErrExist.
func WriteTemplate(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return err
	}
	if _, err := f.Write(Template()); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed to write credentials template '%s'", path)
	}
	return f.Close()
}

// LoadOrTemplate returns the credentials of an existing file. If the file is missing,
// a template is written and the placeholder credentials are returned.
func LoadOrTemplate(path string) (Credentials, bool, error) {
	if file.Exists(path) {
		creds, err := Load(path)
		return creds, false, err
	}
	if err := WriteTemplate(path); err != nil {
		return Placeholders(), false, errors.Wrapf(err, "failed to create credentials template '%s'", path)
	}
	return Placeholders(), true, nil
}

func Template() []byte {
	p := Placeholders()
	var buf bytes.Buffer
	buf.WriteString("# AlertManager notification credentials.\n")
	buf.WriteString("# Replace every " + Placeholder + " value and run 'alerting-reconciler apply-secrets'.\n")
	buf.WriteString("# Chat webhooks are optional: leave a URL empty to disable the provider.\n\n")
	buf.WriteString("# E-mail\n")
	fmt.Fprintf(&buf, "SMTP_PASSWORD=%s\n\n", p.SMTPPassword)
	buf.WriteString("# PagerDuty routing keys per escalation tier\n")
	fmt.Fprintf(&buf, "PAGERDUTY_CRITICAL_KEY=%s\n", p.PagerDutyCriticalKey)
	fmt.Fprintf(&buf, "PAGERDUTY_PLATFORM_KEY=%s\n", p.PagerDutyPlatformKey)
	fmt.Fprintf(&buf, "PAGERDUTY_APPLICATION_KEY=%s\n\n", p.PagerDutyApplicationKey)
	buf.WriteString("# Chat webhooks\n")
	fmt.Fprintf(&buf, "SLACK_WEBHOOK_URL=%s\n", p.SlackWebhookURL)
	fmt.Fprintf(&buf, "TEAMS_WEBHOOK_URL=%s\n", p.TeamsWebhookURL)
	fmt.Fprintf(&buf, "DISCORD_WEBHOOK_URL=%s\n", p.DiscordWebhookURL)
	return buf.Bytes()
}

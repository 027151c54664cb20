package alertmanager

import (
	"fmt"

	"github.com/pkg/errors"
	amconfig "github.com/prometheus/alertmanager/config"
	"gopkg.in/yaml.v3"

	"github.com/kyma-incubator/alerting-reconciler/pkg/credentials"
)

// ProbeAlertName is the name of the always-firing alert used to validate the alerting pipeline.
const ProbeAlertName = "AlertManagerValidationProbe"

const (
	receiverProbe                = "validation-probe"
	receiverDefault              = "default"
	receiverChat                 = "chat"
	receiverPagerDutyCritical    = "pagerduty-critical"
	receiverPagerDutyPlatform    = "pagerduty-platform"
	receiverPagerDutyApplication = "pagerduty-application"

	templatesGlob = templatesMountPath + "/*.tmpl"
)

// RoutingConfig holds the non-secret parts of the notification setup.
type RoutingConfig struct {
	SMTPSmarthost  string
	SMTPFrom       string
	SMTPUsername   string
	EmailTo        string
	SlackChannel   string
	ResolveTimeout string
}

func (rc *RoutingConfig) validate() error {
	if rc.SMTPSmarthost == "" {
		return fmt.Errorf("SMTP smarthost is undefined")
	}
	if rc.SMTPFrom == "" {
		return fmt.Errorf("SMTP sender address is undefined")
	}
	if rc.EmailTo == "" {
		return fmt.Errorf("e-mail recipient is undefined")
	}
	if rc.SMTPUsername == "" {
		rc.SMTPUsername = rc.SMTPFrom
	}
	if rc.SlackChannel == "" {
		rc.SlackChannel = "#alerts"
	}
	if rc.ResolveTimeout == "" {
		rc.ResolveTimeout = "5m"
	}
	return nil
}

type configFile struct {
	Global       globalConfig  `yaml:"global"`
	Templates    []string      `yaml:"templates,omitempty"`
	Route        route         `yaml:"route"`
	InhibitRules []inhibitRule `yaml:"inhibit_rules,omitempty"`
	Receivers    []receiver    `yaml:"receivers"`
}

type globalConfig struct {
	ResolveTimeout   string `yaml:"resolve_timeout"`
	SMTPSmarthost    string `yaml:"smtp_smarthost"`
	SMTPFrom         string `yaml:"smtp_from"`
	SMTPAuthUsername string `yaml:"smtp_auth_username"`
	SMTPAuthPassword string `yaml:"smtp_auth_password"`
	SMTPRequireTLS   bool   `yaml:"smtp_require_tls"`
}

type route struct {
	Receiver       string   `yaml:"receiver"`
	GroupBy        []string `yaml:"group_by,omitempty"`
	GroupWait      string   `yaml:"group_wait,omitempty"`
	GroupInterval  string   `yaml:"group_interval,omitempty"`
	RepeatInterval string   `yaml:"repeat_interval,omitempty"`
	Matchers       []string `yaml:"matchers,omitempty"`
	Continue       bool     `yaml:"continue,omitempty"`
	Routes         []route  `yaml:"routes,omitempty"`
}

type inhibitRule struct {
	SourceMatchers []string `yaml:"source_matchers"`
	TargetMatchers []string `yaml:"target_matchers"`
	Equal          []string `yaml:"equal,omitempty"`
}

type receiver struct {
	Name             string            `yaml:"name"`
	EmailConfigs     []emailConfig     `yaml:"email_configs,omitempty"`
	PagerDutyConfigs []pagerDutyConfig `yaml:"pagerduty_configs,omitempty"`
	SlackConfigs     []slackConfig     `yaml:"slack_configs,omitempty"`
	WebhookConfigs   []webhookConfig   `yaml:"webhook_configs,omitempty"`
}

type emailConfig struct {
	To           string `yaml:"to"`
	SendResolved bool   `yaml:"send_resolved"`
}

type pagerDutyConfig struct {
	RoutingKey   string `yaml:"routing_key"`
	SendResolved bool   `yaml:"send_resolved"`
}

type slackConfig struct {
	APIURL       string `yaml:"api_url"`
	Channel      string `yaml:"channel"`
	Title        string `yaml:"title,omitempty"`
	Text         string `yaml:"text,omitempty"`
	SendResolved bool   `yaml:"send_resolved"`
}

type webhookConfig struct {
	URL          string `yaml:"url"`
	SendResolved bool   `yaml:"send_resolved"`
}

func matcher(label, value string) string {
	return fmt.Sprintf("%s=%q", label, value)
}

// BuildConfig renders alertmanager.yml with the escalation tiers:
// critical alerts page the critical PagerDuty service, platform and application
// alerts page their domain service, warnings go to chat and everything else
// to e-mail and chat. Critical alerts inhibit warnings of the same alert.
// The rendered file is validated before it is returned.
func BuildConfig(creds credentials.Credentials, routing RoutingConfig) ([]byte, error) {
	if err := routing.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid routing configuration")
	}

	chat := chatReceiver(receiverChat, creds, routing)
	defaultReceiver := chatReceiver(receiverDefault, creds, routing)
	defaultReceiver.EmailConfigs = []emailConfig{{To: routing.EmailTo, SendResolved: true}}

	cfg := configFile{
		Global: globalConfig{
			ResolveTimeout:   routing.ResolveTimeout,
			SMTPSmarthost:    routing.SMTPSmarthost,
			SMTPFrom:         routing.SMTPFrom,
			SMTPAuthUsername: routing.SMTPUsername,
			SMTPAuthPassword: creds.SMTPPassword,
			SMTPRequireTLS:   true,
		},
		Templates: []string{templatesGlob},
		Route: route{
			Receiver:       receiverDefault,
			GroupBy:        []string{"alertname", "namespace"},
			GroupWait:      "30s",
			GroupInterval:  "5m",
			RepeatInterval: "4h",
			Routes: []route{
				{
					Receiver:       receiverProbe,
					Matchers:       []string{matcher("alertname", ProbeAlertName)},
					RepeatInterval: "24h",
				},
				{
					Receiver:       receiverPagerDutyCritical,
					Matchers:       []string{matcher("severity", "critical")},
					RepeatInterval: "1h",
				},
				{
					Receiver: receiverPagerDutyPlatform,
					Matchers: []string{matcher("domain", "platform")},
				},
				{
					Receiver: receiverPagerDutyApplication,
					Matchers: []string{matcher("domain", "application")},
				},
				{
					Receiver: receiverChat,
					Matchers: []string{matcher("severity", "warning")},
				},
			},
		},
		InhibitRules: []inhibitRule{
			{
				SourceMatchers: []string{matcher("severity", "critical")},
				TargetMatchers: []string{matcher("severity", "warning")},
				Equal:          []string{"alertname", "namespace"},
			},
		},
		Receivers: []receiver{
			{Name: receiverProbe},
			defaultReceiver,
			chat,
			pagerDutyReceiver(receiverPagerDutyCritical, creds.PagerDutyCriticalKey),
			pagerDutyReceiver(receiverPagerDutyPlatform, creds.PagerDutyPlatformKey),
			pagerDutyReceiver(receiverPagerDutyApplication, creds.PagerDutyApplicationKey),
		},
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to render alertmanager configuration")
	}
	if err := ValidateConfig(data); err != nil {
		return nil, err
	}
	return data, nil
}

// ValidateConfig parses the configuration the same way AlertManager does on startup.
func ValidateConfig(data []byte) error {
	if _, err := amconfig.Load(string(data)); err != nil {
		return errors.Wrap(err, "alertmanager configuration is invalid")
	}
	return nil
}

func pagerDutyReceiver(name, routingKey string) receiver {
	return receiver{
		Name:             name,
		PagerDutyConfigs: []pagerDutyConfig{{RoutingKey: routingKey, SendResolved: true}},
	}
}

func chatReceiver(name string, creds credentials.Credentials, routing RoutingConfig) receiver {
	r := receiver{Name: name}
	if creds.SlackWebhookURL != "" {
		r.SlackConfigs = append(r.SlackConfigs, slackConfig{
			APIURL:       creds.SlackWebhookURL,
			Channel:      routing.SlackChannel,
			Title:        `{{ template "alerting.title" . }}`,
			Text:         `{{ template "alerting.text" . }}`,
			SendResolved: true,
		})
	}
	for _, url := range []string{creds.TeamsWebhookURL, creds.DiscordWebhookURL} {
		if url != "" {
			r.WebhookConfigs = append(r.WebhookConfigs, webhookConfig{URL: url, SendResolved: true})
		}
	}
	return r
}

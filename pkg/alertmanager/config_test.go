package alertmanager

import (
	"testing"

	amconfig "github.com/prometheus/alertmanager/config"
	"github.com/stretchr/testify/require"

	"github.com/kyma-incubator/alerting-reconciler/pkg/credentials"
)

func testRouting() RoutingConfig {
	return RoutingConfig{
		SMTPSmarthost: "smtp.example.com:587",
		SMTPFrom:      "alertmanager@example.com",
		EmailTo:       "oncall@example.com",
	}
}

func receiverByName(t *testing.T, cfg *amconfig.Config, name string) *amconfig.Receiver {
	for i := range cfg.Receivers {
		if cfg.Receivers[i].Name == name {
			return &cfg.Receivers[i]
		}
	}
	t.Fatalf("receiver '%s' not found", name)
	return nil
}

func TestBuildConfig(t *testing.T) {
	t.Run("Placeholder credentials render a valid configuration", func(t *testing.T) {
		data, err := BuildConfig(credentials.Placeholders(), testRouting())
		require.NoError(t, err)

		cfg, err := amconfig.Load(string(data))
		require.NoError(t, err)
		require.Equal(t, receiverDefault, cfg.Route.Receiver)
		require.Len(t, cfg.Route.Routes, 5)
		require.Len(t, cfg.InhibitRules, 1)
		require.Equal(t, []string{templatesGlob}, cfg.Templates)
	})

	t.Run("Escalation tiers", func(t *testing.T) {
		creds := credentials.Credentials{
			SMTPPassword:            "s3cr3t",
			PagerDutyCriticalKey:    "crit",
			PagerDutyPlatformKey:    "plat",
			PagerDutyApplicationKey: "app",
			SlackWebhookURL:         "https://hooks.slack.com/services/T000/B000/XXX",
			DiscordWebhookURL:       "https://discord.com/api/webhooks/1/abc",
		}
		data, err := BuildConfig(creds, testRouting())
		require.NoError(t, err)

		cfg, err := amconfig.Load(string(data))
		require.NoError(t, err)

		expectedRoutes := map[string]string{
			receiverProbe:                `alertname="AlertManagerValidationProbe"`,
			receiverPagerDutyCritical:    `severity="critical"`,
			receiverPagerDutyPlatform:    `domain="platform"`,
			receiverPagerDutyApplication: `domain="application"`,
			receiverChat:                 `severity="warning"`,
		}
		for _, r := range cfg.Route.Routes {
			expected, ok := expectedRoutes[r.Receiver]
			require.True(t, ok, "unexpected route to receiver '%s'", r.Receiver)
			require.Len(t, r.Matchers, 1)
			require.Equal(t, expected, r.Matchers[0].String())
		}
		require.Equal(t, receiverProbe, cfg.Route.Routes[0].Receiver)

		require.Equal(t, "crit", string(receiverByName(t, cfg, receiverPagerDutyCritical).PagerdutyConfigs[0].RoutingKey))
		require.Equal(t, "plat", string(receiverByName(t, cfg, receiverPagerDutyPlatform).PagerdutyConfigs[0].RoutingKey))
		require.Equal(t, "app", string(receiverByName(t, cfg, receiverPagerDutyApplication).PagerdutyConfigs[0].RoutingKey))

		chat := receiverByName(t, cfg, receiverChat)
		require.Len(t, chat.SlackConfigs, 1)
		require.Len(t, chat.WebhookConfigs, 1)
		require.Empty(t, chat.EmailConfigs)

		def := receiverByName(t, cfg, receiverDefault)
		require.Len(t, def.EmailConfigs, 1)
		require.Equal(t, "oncall@example.com", def.EmailConfigs[0].To)
		require.Len(t, def.SlackConfigs, 1)

		probe := receiverByName(t, cfg, receiverProbe)
		require.Empty(t, probe.EmailConfigs)
		require.Empty(t, probe.PagerdutyConfigs)

		require.Equal(t, "s3cr3t", string(cfg.Global.SMTPAuthPassword))
	})

	t.Run("Chat providers are optional", func(t *testing.T) {
		creds := credentials.Credentials{
			PagerDutyCriticalKey:    "crit",
			PagerDutyPlatformKey:    "plat",
			PagerDutyApplicationKey: "app",
		}
		data, err := BuildConfig(creds, testRouting())
		require.NoError(t, err)

		cfg, err := amconfig.Load(string(data))
		require.NoError(t, err)
		chat := receiverByName(t, cfg, receiverChat)
		require.Empty(t, chat.SlackConfigs)
		require.Empty(t, chat.WebhookConfigs)
	})

	t.Run("Missing routing settings", func(t *testing.T) {
		_, err := BuildConfig(credentials.Placeholders(), RoutingConfig{SMTPFrom: "alertmanager@example.com"})
		require.Error(t, err)
	})
}

func TestValidateConfig(t *testing.T) {
	require.NoError(t, ValidateConfig([]byte(`
route:
  receiver: default
receivers:
- name: default
`)))
	require.Error(t, ValidateConfig([]byte(`
route:
  receiver: unknown
receivers:
- name: default
`)))
}

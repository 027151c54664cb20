package prometheus

import (
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/imdario/mergo"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// AlertingFragment is the part of prometheus.yml which points Prometheus to the given AlertManager targets.
func AlertingFragment(targets ...string) map[string]interface{} {
	staticTargets := make([]interface{}, 0, len(targets))
	for _, target := range targets {
		staticTargets = append(staticTargets, target)
	}
	return map[string]interface{}{
		"alerting": map[string]interface{}{
			"alertmanagers": []interface{}{
				map[string]interface{}{
					"static_configs": []interface{}{
						map[string]interface{}{"targets": staticTargets},
					},
				},
			},
		},
	}
}

// MergeConfig adds the AlertManager targets of fragment to the YAML document config.
// Existing alertmanagers entries are kept: a static_configs entry is appended only for
// targets no entry lists yet, so a repeated merge converges.
// The returned flag is false if the document already contained all targets; the returned
// document is only meaningful if it is true.
func MergeConfig(config string, fragment map[string]interface{}) (string, bool, error) {
	original, err := parse(config)
	if err != nil {
		return "", false, err
	}
	merged, err := parse(config)
	if err != nil {
		return "", false, err
	}

	existing := alertmanagerTargets(original)
	var missing []string
	for target := range alertmanagerTargets(fragment) {
		if !existing[target] {
			missing = append(missing, target)
		}
	}
	if len(missing) == 0 {
		return "", false, nil
	}
	sort.Strings(missing)

	if err := mergo.Merge(&merged, AlertingFragment(missing...), mergo.WithAppendSlice); err != nil {
		return "", false, errors.Wrap(err, "failed to merge alerting configuration")
	}

	if cmp.Equal(original, merged) {
		return "", false, nil
	}

	out, err := yaml.Marshal(merged)
	if err != nil {
		return "", false, errors.Wrap(err, "failed to render merged configuration")
	}
	return string(out), true, nil
}

// alertmanagerTargets collects the static targets of all alerting.alertmanagers entries.
func alertmanagerTargets(doc map[string]interface{}) map[string]bool {
	targets := map[string]bool{}
	alerting, _ := doc["alerting"].(map[string]interface{})
	alertmanagers, _ := alerting["alertmanagers"].([]interface{})
	for _, am := range alertmanagers {
		amConfig, _ := am.(map[string]interface{})
		staticConfigs, _ := amConfig["static_configs"].([]interface{})
		for _, sc := range staticConfigs {
			staticConfig, _ := sc.(map[string]interface{})
			staticTargets, _ := staticConfig["targets"].([]interface{})
			for _, target := range staticTargets {
				if t, ok := target.(string); ok {
					targets[t] = true
				}
			}
		}
	}
	return targets
}

func parse(config string) (map[string]interface{}, error) {
	doc := map[string]interface{}{}
	if err := yaml.Unmarshal([]byte(config), &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse Prometheus configuration")
	}
	if doc == nil {
		doc = map[string]interface{}{}
	}
	return doc, nil
}

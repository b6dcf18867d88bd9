package webhook

import (
	"fmt"
	"time"
)

// Payload represents the webhook body posted by Prometheus Alertmanager.
type Payload struct {
	Version           string            `json:"version"`
	GroupKey          string            `json:"groupKey"`
	TruncatedAlerts   int               `json:"truncatedAlerts"`
	Status            string            `json:"status"`
	Receiver          string            `json:"receiver"`
	GroupLabels       map[string]string `json:"groupLabels"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
	ExternalURL       string            `json:"externalURL"`
	Alerts            []Alert           `json:"alerts"`
}

// Alert represents a single alert entry in the payload.
type Alert struct {
	Status       string            `json:"status"`
	Labels       map[string]string `json:"labels"`
	Annotations  map[string]string `json:"annotations"`
	StartsAt     time.Time         `json:"startsAt"`
	EndsAt       time.Time         `json:"endsAt"`
	GeneratorURL string            `json:"generatorURL"`
	Fingerprint  string            `json:"fingerprint"`
}

// AlertName returns the mandatory alertname label.
func (a *Alert) AlertName() string {
	return a.Labels["alertname"]
}

// Severity returns the severity label, empty when absent.
func (a *Alert) Severity() string {
	return a.Labels["severity"]
}

// Instance returns the instance label, empty when absent.
func (a *Alert) Instance() string {
	return a.Labels["instance"]
}

// Validate checks the payload at the boundary, before any store write.
// It returns field-level errors keyed by a JSON-path-ish field name.
func (p *Payload) Validate() map[string]string {
	errs := make(map[string]string)

	for i, alert := range p.Alerts {
		prefix := fmt.Sprintf("alerts[%d]", i)

		if alert.Fingerprint == "" {
			errs[prefix+".fingerprint"] = "fingerprint is required"
		}
		if alert.StartsAt.IsZero() {
			errs[prefix+".startsAt"] = "startsAt is required"
		}
		if alert.Labels["alertname"] == "" {
			errs[prefix+".labels.alertname"] = "labels must include alertname"
		}
		switch alert.Status {
		case "firing", "resolved":
		default:
			errs[prefix+".status"] = "status must be firing or resolved"
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

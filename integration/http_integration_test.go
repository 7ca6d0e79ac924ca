package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vigil-go/internal/api"
	"vigil-go/internal/domain"
)

// doRequest runs a request against the in-process fiber app.
func doRequest(app *fiber.App, method, path string, body interface{}) *http.Response {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	Expect(err).NotTo(HaveOccurred())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, 5000)
	Expect(err).NotTo(HaveOccurred())
	return resp
}

// parseEnvelope decodes the standard response envelope and re-marshals the
// data payload into target, if given.
func parseEnvelope(resp *http.Response, target interface{}) api.APIResponse {
	defer resp.Body.Close()

	var envelope api.APIResponse
	Expect(json.NewDecoder(resp.Body).Decode(&envelope)).To(Succeed())
	if target != nil {
		data, err := json.Marshal(envelope.Data)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(data, target)).To(Succeed())
	}
	return envelope
}

var _ = Describe("HTTP API", func() {
	var (
		s   *stack
		app *fiber.App
	)

	BeforeEach(func() {
		s = newStack()
		app = s.server.App()
		s.seedTemplates(domain.RuleTypeQualityThreshold)
		s.seedTemplates(domain.RuleTypeProductivityAnomaly)
	})

	AfterEach(func() {
		s.close()
	})

	Describe("health check", func() {
		It("returns ok", func() {
			resp := doRequest(app, "GET", "/healthz", nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("rule management", func() {
		It("supports the full CRUD cycle", func() {
			resp := doRequest(app, "POST", "/v1/rules", qualityRule())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var created domain.AlertRule
			envelope := parseEnvelope(resp, &created)
			Expect(envelope.Success).To(BeTrue())
			Expect(created.ID).NotTo(BeEmpty())

			resp = doRequest(app, "GET", "/v1/rules/"+created.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var fetched domain.AlertRule
			parseEnvelope(resp, &fetched)
			Expect(fetched.Name).To(Equal("Low Code Quality"))

			fetched.Description = "updated"
			resp = doRequest(app, "PUT", "/v1/rules/"+created.ID, fetched)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp = doRequest(app, "DELETE", "/v1/rules/"+created.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			resp = doRequest(app, "GET", "/v1/rules/"+created.ID, nil)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("rejects a rule without a name", func() {
			r := qualityRule()
			r.Name = ""
			resp := doRequest(app, "POST", "/v1/rules", r)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			envelope := parseEnvelope(resp, nil)
			Expect(envelope.Success).To(BeFalse())
			Expect(envelope.Error.Code).To(Equal(api.ErrCodeValidationFailed))
		})
	})

	Describe("metric intake and alert lifecycle", func() {
		var ruleID string

		BeforeEach(func() {
			var created domain.AlertRule
			resp := doRequest(app, "POST", "/v1/rules", qualityRule())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			parseEnvelope(resp, &created)
			ruleID = created.ID
		})

		ingestAndWait := func(userID string) domain.Alert {
			resp := doRequest(app, "POST", "/v1/metrics", map[string]interface{}{
				"metrics": qualitySamples(userID, 40),
			})
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			var accepted map[string]interface{}
			parseEnvelope(resp, &accepted)
			Expect(accepted["received"]).To(BeNumerically("==", 2))

			var alerts []domain.Alert
			Eventually(func() int {
				resp := doRequest(app, "GET", "/v1/alerts?status=active&user_id="+userID, nil)
				parseEnvelope(resp, &alerts)
				return len(alerts)
			}, 3*time.Second, 20*time.Millisecond).Should(Equal(1))
			return alerts[0]
		}

		It("turns breaching metrics into an alert visible over the API", func() {
			alert := ingestAndWait("user-7")
			Expect(alert.RuleID).To(Equal(ruleID))
			Expect(alert.Severity).To(Equal(domain.SeverityHigh))

			resp := doRequest(app, "GET", "/v1/alerts/"+alert.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp = doRequest(app, "GET", "/v1/alerts/summary", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var summary map[string]interface{}
			parseEnvelope(resp, &summary)
			Expect(summary["total_alerts"]).To(BeNumerically(">=", 1))
		})

		It("rejects an empty metrics batch", func() {
			resp := doRequest(app, "POST", "/v1/metrics", map[string]interface{}{
				"metrics": []domain.MetricData{},
			})
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("walks an alert through acknowledge and resolve", func() {
			alert := ingestAndWait("user-7")

			resp := doRequest(app, "POST", "/v1/alerts/"+alert.ID+"/acknowledge", map[string]string{})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()

			resp = doRequest(app, "POST", "/v1/alerts/"+alert.ID+"/acknowledge", map[string]string{"user_id": "lead-1"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var acked domain.Alert
			parseEnvelope(resp, &acked)
			Expect(acked.Status).To(Equal(domain.AlertStatusAcknowledged))

			// Acknowledging twice is an invalid transition.
			resp = doRequest(app, "POST", "/v1/alerts/"+alert.ID+"/acknowledge", map[string]string{"user_id": "lead-1"})
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			resp.Body.Close()

			resp = doRequest(app, "POST", "/v1/alerts/"+alert.ID+"/resolve", map[string]string{"user_id": "lead-1"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var resolved domain.Alert
			parseEnvelope(resp, &resolved)
			Expect(resolved.Status).To(Equal(domain.AlertStatusResolved))
		})

		It("suppresses an alert for a duration and rejects past deadlines", func() {
			alert := ingestAndWait("user-7")

			resp := doRequest(app, "POST", "/v1/alerts/"+alert.ID+"/suppress", map[string]interface{}{
				"until": time.Now().UTC().Add(-time.Hour),
			})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			resp.Body.Close()

			resp = doRequest(app, "POST", "/v1/alerts/"+alert.ID+"/suppress", map[string]interface{}{
				"duration_minutes": 60,
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var suppressed domain.Alert
			parseEnvelope(resp, &suppressed)
			Expect(suppressed.Status).To(Equal(domain.AlertStatusSuppressed))
		})

		It("accepts alert feedback", func() {
			alert := ingestAndWait("user-7")

			resp := doRequest(app, "POST", "/v1/alerts/"+alert.ID+"/feedback", map[string]interface{}{
				"user_id": "user-7",
				"useful":  false,
				"comment": "threshold too sensitive",
			})
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
		})

		It("lists the deliveries produced for an alert", func() {
			alert := ingestAndWait("user-7")

			Eventually(func() int {
				resp := doRequest(app, "GET", "/v1/deliveries?alert_id="+alert.ID, nil)
				var deliveries []domain.NotificationDelivery
				parseEnvelope(resp, &deliveries)
				return len(deliveries)
			}, 3*time.Second, 20*time.Millisecond).Should(Equal(4))
		})
	})

	Describe("anomaly intake", func() {
		It("creates an alert for a confident anomaly", func() {
			resp := doRequest(app, "POST", "/v1/anomalies", map[string]interface{}{
				"result": domain.MLAnomalyResult{
					IsAnomaly:     true,
					Confidence:    0.95,
					MetricType:    "focus_time",
					ExpectedValue: 240,
					ActualValue:   90,
				},
				"context": domain.AlertContext{UserID: "user-9"},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var alert domain.Alert
			parseEnvelope(resp, &alert)
			Expect(alert.Severity).To(Equal(domain.SeverityCritical))
		})

		It("reports created=false for a non-anomaly", func() {
			resp := doRequest(app, "POST", "/v1/anomalies", map[string]interface{}{
				"result": domain.MLAnomalyResult{IsAnomaly: false, Confidence: 0.2},
			})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var result map[string]interface{}
			parseEnvelope(resp, &result)
			Expect(result["created"]).To(BeFalse())
		})

		It("rejects an out-of-range confidence", func() {
			resp := doRequest(app, "POST", "/v1/anomalies", map[string]interface{}{
				"result": domain.MLAnomalyResult{IsAnomaly: true, Confidence: 1.5},
			})
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("notification management", func() {
		It("manages templates over the API", func() {
			resp := doRequest(app, "POST", "/v1/templates", domain.NotificationTemplate{
				Channel:   domain.ChannelWebhook,
				AlertType: domain.RuleTypeCustom,
				Subject:   "{{alertTitle}}",
				Body:      "{{alertMessage}}",
			})
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var created domain.NotificationTemplate
			parseEnvelope(resp, &created)
			Expect(created.ID).NotTo(BeEmpty())

			resp = doRequest(app, "GET", "/v1/templates/"+created.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			created.Body = "{{alertMessage}} ({{severity}})"
			resp = doRequest(app, "PUT", "/v1/templates/"+created.ID, created)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp = doRequest(app, "DELETE", "/v1/templates/"+created.ID, nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
		})

		It("rejects a template with an unknown channel", func() {
			resp := doRequest(app, "POST", "/v1/templates", map[string]string{
				"channel":    "carrier_pigeon",
				"alert_type": "custom",
				"subject":    "s",
				"body":       "b",
			})
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("validates registered providers", func() {
			resp := doRequest(app, "GET", "/v1/providers/validate", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var result map[string]interface{}
			parseEnvelope(resp, &result)
			Expect(result["valid"]).To(BeTrue())
		})

		It("serves the in-app notification center", func() {
			var created domain.AlertRule
			resp := doRequest(app, "POST", "/v1/rules", qualityRule())
			parseEnvelope(resp, &created)

			resp = doRequest(app, "POST", "/v1/metrics", map[string]interface{}{
				"metrics": qualitySamples("user-7", 40),
			})
			Expect(resp.StatusCode).To(Equal(http.StatusAccepted))
			resp.Body.Close()

			var inbox []domain.InAppNotification
			Eventually(func() int {
				resp := doRequest(app, "GET", "/v1/notifications?user_id=user-7", nil)
				parseEnvelope(resp, &inbox)
				return len(inbox)
			}, 3*time.Second, 20*time.Millisecond).Should(Equal(1))

			resp = doRequest(app, "POST", "/v1/notifications/"+inbox[0].ID+"/read", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			resp.Body.Close()

			resp = doRequest(app, "GET", "/v1/notifications?user_id=user-7", nil)
			parseEnvelope(resp, &inbox)
			Expect(inbox[0].Read).To(BeTrue())
		})
	})
})

package integration

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"vigil-go/internal/domain"
)

// qualityRule triggers when average code quality over 15 minutes drops
// below 60. The 40-point samples used below land a third under the
// threshold, which classifies as high severity.
func qualityRule() *domain.AlertRule {
	return &domain.AlertRule{
		Name:     "Low Code Quality",
		Type:     domain.RuleTypeQualityThreshold,
		Severity: domain.SeverityMedium,
		Enabled:  true,
		Conditions: []domain.AlertCondition{
			{
				MetricType:        "code_quality_score",
				Operator:          domain.OperatorLT,
				Threshold:         60,
				TimeWindowMinutes: 15,
				Aggregation:       domain.AggregationAvg,
			},
		},
		CooldownMinutes: 30,
	}
}

func qualitySamples(userID string, value float64) []domain.MetricData {
	now := time.Now().UTC()
	return []domain.MetricData{
		{Type: "code_quality_score", Value: value, Timestamp: now.Add(-2 * time.Minute), UserID: userID},
		{Type: "code_quality_score", Value: value, Timestamp: now.Add(-1 * time.Minute), UserID: userID},
	}
}

var _ = Describe("Alert Pipeline", func() {
	var (
		s   *stack
		ctx context.Context
	)

	BeforeEach(func() {
		s = newStack()
		ctx = context.Background()
		s.seedTemplates(domain.RuleTypeQualityThreshold)
	})

	AfterEach(func() {
		s.close()
	})

	Context("when ingested metrics breach a threshold rule", func() {
		It("creates an alert and delivers it over the routed channels", func() {
			r := qualityRule()
			Expect(s.alerts.CreateRule(ctx, r)).To(Succeed())

			Expect(s.ingest.IngestMetrics(ctx, qualitySamples("user-7", 40))).To(Succeed())

			var alert *domain.Alert
			Eventually(func() int {
				active, err := s.alerts.GetActiveAlerts(ctx)
				Expect(err).NotTo(HaveOccurred())
				if len(active) > 0 {
					alert = active[0]
				}
				return len(active)
			}, 3*time.Second, 20*time.Millisecond).Should(Equal(1))

			Expect(alert.RuleID).To(Equal(r.ID))
			Expect(alert.Severity).To(Equal(domain.SeverityHigh))
			Expect(alert.Context.UserID).To(Equal("user-7"))
			Expect(alert.Context.MetricValues).To(HaveKeyWithValue("code_quality_score", 40.0))

			// High severity routes to slack + in_app, with #eng-alerts
			// plus the affected user as recipients.
			Eventually(s.slack.SendCount, 3*time.Second, 20*time.Millisecond).Should(Equal(2))
			Expect(s.slack.Recipients()).To(ContainElements("#eng-alerts", "user-7"))

			Eventually(func() int {
				inbox, err := s.inApp.ListForUser(ctx, "user-7")
				Expect(err).NotTo(HaveOccurred())
				return len(inbox)
			}, 3*time.Second, 20*time.Millisecond).Should(Equal(1))

			inbox, err := s.inApp.ListForUser(ctx, "user-7")
			Expect(err).NotTo(HaveOccurred())
			Expect(inbox[0].Title).To(Equal("high: Low Code Quality: code_quality_score"))
			Expect(inbox[0].Read).To(BeFalse())

			Eventually(func() int {
				deliveries, err := s.notifier.GetDeliveries(ctx, alert.ID)
				Expect(err).NotTo(HaveOccurred())
				return len(deliveries)
			}, 3*time.Second, 20*time.Millisecond).Should(Equal(4))

			deliveries, err := s.notifier.GetDeliveries(ctx, alert.ID)
			Expect(err).NotTo(HaveOccurred())
			for _, d := range deliveries {
				Expect(d.Status).To(Equal(domain.DeliveryDelivered))
			}
		})

		It("deduplicates repeat breaches within the cooldown window", func() {
			Expect(s.alerts.CreateRule(ctx, qualityRule())).To(Succeed())

			Expect(s.ingest.IngestMetrics(ctx, qualitySamples("user-7", 40))).To(Succeed())
			Eventually(func() int {
				active, _ := s.alerts.GetActiveAlerts(ctx)
				return len(active)
			}, 3*time.Second, 20*time.Millisecond).Should(Equal(1))

			// A second breach for the same user lands on the open alert.
			// A breach for a different user is an independent subject.
			Expect(s.ingest.IngestMetrics(ctx, qualitySamples("user-7", 35))).To(Succeed())
			Expect(s.ingest.IngestMetrics(ctx, qualitySamples("user-8", 35))).To(Succeed())

			Eventually(func() int {
				active, _ := s.alerts.GetActiveAlerts(ctx)
				return len(active)
			}, 3*time.Second, 20*time.Millisecond).Should(Equal(2))

			Consistently(func() int {
				active, _ := s.alerts.GetActiveAlerts(ctx)
				return len(active)
			}, 200*time.Millisecond, 50*time.Millisecond).Should(Equal(2))

			userAlerts, err := s.alerts.ListAlerts(ctx, domain.AlertFilter{UserID: "user-7", Limit: 10})
			Expect(err).NotTo(HaveOccurred())
			Expect(userAlerts).To(HaveLen(1))
		})

		It("allows a fresh alert once the previous one is resolved", func() {
			Expect(s.alerts.CreateRule(ctx, qualityRule())).To(Succeed())

			Expect(s.ingest.IngestMetrics(ctx, qualitySamples("user-7", 40))).To(Succeed())

			var first *domain.Alert
			Eventually(func() int {
				active, _ := s.alerts.GetActiveAlerts(ctx)
				if len(active) > 0 {
					first = active[0]
				}
				return len(active)
			}, 3*time.Second, 20*time.Millisecond).Should(Equal(1))

			acked, err := s.alerts.AcknowledgeAlert(ctx, first.ID, "lead-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(acked.Status).To(Equal(domain.AlertStatusAcknowledged))

			resolved, err := s.alerts.ResolveAlert(ctx, first.ID, "lead-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(resolved.Status).To(Equal(domain.AlertStatusResolved))

			// Resolution releases the dedup slot for the subject.
			Expect(s.ingest.IngestMetrics(ctx, qualitySamples("user-7", 30))).To(Succeed())

			Eventually(func() int {
				active, _ := s.alerts.GetActiveAlerts(ctx)
				return len(active)
			}, 3*time.Second, 20*time.Millisecond).Should(Equal(1))

			active, err := s.alerts.GetActiveAlerts(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(active[0].ID).NotTo(Equal(first.ID))
		})
	})

	Context("when a provider fails transiently", func() {
		It("retries the failed delivery until it succeeds", func() {
			Expect(s.alerts.CreateRule(ctx, qualityRule())).To(Succeed())
			s.slack.FailNext(1)

			Expect(s.ingest.IngestMetrics(ctx, qualitySamples("user-7", 40))).To(Succeed())

			var alert *domain.Alert
			Eventually(func() int {
				active, _ := s.alerts.GetActiveAlerts(ctx)
				if len(active) > 0 {
					alert = active[0]
				}
				return len(active)
			}, 3*time.Second, 20*time.Millisecond).Should(Equal(1))

			// One of the two slack sends failed; the retry loop picks it
			// up and both end up delivered.
			Eventually(s.slack.SendCount, 3*time.Second, 20*time.Millisecond).Should(Equal(2))

			Eventually(func() bool {
				deliveries, err := s.notifier.GetDeliveries(ctx, alert.ID)
				Expect(err).NotTo(HaveOccurred())
				if len(deliveries) != 4 {
					return false
				}
				for _, d := range deliveries {
					if d.Status != domain.DeliveryDelivered {
						return false
					}
				}
				return true
			}, 3*time.Second, 20*time.Millisecond).Should(BeTrue())

			retried := 0
			deliveries, err := s.notifier.GetDeliveries(ctx, alert.ID)
			Expect(err).NotTo(HaveOccurred())
			for _, d := range deliveries {
				retried += d.RetryCount
			}
			Expect(retried).To(Equal(1))
		})
	})

	Context("when an ML anomaly result arrives", func() {
		It("creates a classified alert with recommendations", func() {
			s.seedTemplates(domain.RuleTypeProductivityAnomaly)

			result := &domain.MLAnomalyResult{
				IsAnomaly:     true,
				Confidence:    0.95,
				AnomalyScore:  0.8,
				MetricType:    "focus_time",
				ExpectedValue: 240,
				ActualValue:   90,
			}
			alert, err := s.alerts.EvaluateMLAnomaly(ctx, result, domain.AlertContext{UserID: "user-9"})
			Expect(err).NotTo(HaveOccurred())
			Expect(alert).NotTo(BeNil())
			Expect(alert.Type).To(Equal(domain.RuleTypeProductivityAnomaly))
			Expect(alert.Severity).To(Equal(domain.SeverityCritical))
			Expect(alert.Recommendations).NotTo(BeEmpty())

			// Critical routes to slack + email + in_app.
			Eventually(s.email.SendCount, 3*time.Second, 20*time.Millisecond).Should(BeNumerically(">=", 1))
			Eventually(s.slack.SendCount, 3*time.Second, 20*time.Millisecond).Should(BeNumerically(">=", 1))
		})
	})
})

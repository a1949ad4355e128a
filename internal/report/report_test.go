package report_test

import (
	"bytes"
	"time"

	"github.com/goccy/go-json"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tupyy/platform-verifier/internal/models"
	"github.com/tupyy/platform-verifier/internal/report"
)

func sampleReport() *models.RunReport {
	r := &models.RunReport{
		RunID:     "run-1234",
		StartedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Results: map[string]models.ProbeResult{
			"db-health": {
				ProbeID:  "db-health",
				Check:    "db",
				Phase:    0,
				Attempts: 1,
				Outcome:  models.OutcomePassed,
				Latency:  12 * time.Millisecond,
			},
			"auth-health": {
				ProbeID:  "auth-health",
				Check:    "auth",
				Phase:    0,
				Attempts: 3,
				Outcome:  models.OutcomePassed,
				Latency:  40 * time.Millisecond,
			},
			"gateway-health": {
				ProbeID:   "gateway-health",
				Check:     "auth-via-gateway",
				Phase:     1,
				Attempts:  2,
				Outcome:   models.OutcomeUnreachable,
				LastError: "dial tcp: connection refused",
			},
		},
	}
	r.Finalize(r.StartedAt.Add(3 * time.Second))
	return r
}

var _ = Describe("ExitCode", func() {
	It("should be 0 when every required probe passed", func() {
		r := sampleReport()
		delete(r.Results, "gateway-health")
		r.Finalize(r.StartedAt.Add(time.Second))
		Expect(report.ExitCode(r)).To(Equal(report.ExitPassed))
	})

	It("should be 1 when a required probe failed", func() {
		Expect(report.ExitCode(sampleReport())).To(Equal(report.ExitFailed))
	})

	It("should be 0 when only optional probes failed", func() {
		r := sampleReport()
		res := r.Results["gateway-health"]
		res.Optional = true
		r.Results["gateway-health"] = res
		r.Finalize(r.StartedAt.Add(time.Second))
		Expect(report.ExitCode(r)).To(Equal(report.ExitPassed))
	})

	It("should be 2 when the run was cancelled", func() {
		r := sampleReport()
		r.Cancelled = true
		Expect(report.ExitCode(r)).To(Equal(report.ExitCancelled))
	})
})

var _ = Describe("Summarize", func() {
	It("should enumerate every probe with its classification", func() {
		var buf bytes.Buffer
		report.Summarize(&buf, sampleReport())
		out := buf.String()

		Expect(out).To(ContainSubstring("run run-1234"))
		Expect(out).To(ContainSubstring("FAILED"))
		Expect(out).To(ContainSubstring("db-health"))
		Expect(out).To(ContainSubstring("auth-health"))
		Expect(out).To(ContainSubstring("gateway-health"))
		Expect(out).To(ContainSubstring("phase 0"))
		Expect(out).To(ContainSubstring("phase 1"))
	})

	It("should name the failing check and phase for triage", func() {
		var buf bytes.Buffer
		report.Summarize(&buf, sampleReport())
		out := buf.String()

		Expect(out).To(ContainSubstring("unreachable"))
		Expect(out).To(ContainSubstring("check=auth-via-gateway"))
		Expect(out).To(ContainSubstring("phase=1"))
		Expect(out).To(ContainSubstring("connection refused"))
	})

	It("should surface attempt counts for retried probes", func() {
		var buf bytes.Buffer
		report.Summarize(&buf, sampleReport())
		Expect(buf.String()).To(ContainSubstring("(3 attempts)"))
	})
})

var _ = Describe("WriteJSON", func() {
	It("should produce a decodable machine-readable report", func() {
		var buf bytes.Buffer
		Expect(report.WriteJSON(&buf, sampleReport())).To(Succeed())

		var decoded models.RunReport
		Expect(json.Unmarshal(buf.Bytes(), &decoded)).To(Succeed())
		Expect(decoded.RunID).To(Equal("run-1234"))
		Expect(decoded.Overall).To(Equal(models.RunFailed))
		Expect(decoded.Results).To(HaveLen(3))
		Expect(decoded.Results["gateway-health"].Outcome).To(Equal(models.OutcomeUnreachable))
	})
})

var _ = Describe("WriteXLSX", func() {
	It("should write a workbook", func() {
		var buf bytes.Buffer
		Expect(report.WriteXLSX(&buf, sampleReport())).To(Succeed())
		// xlsx files are zip archives
		Expect(buf.Bytes()[:2]).To(Equal([]byte("PK")))
	})
})

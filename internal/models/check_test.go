package models_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/tupyy/platform-verifier/internal/models"
)

var _ = Describe("AuthRequirement", func() {
	DescribeTable("parsing",
		func(in string, want models.AuthRequirement, ok bool) {
			got, err := models.ParseAuthRequirement(in)
			if ok {
				Expect(err).To(BeNil())
				Expect(got).To(Equal(want))
			} else {
				Expect(err).ToNot(BeNil())
			}
		},
		Entry("empty means none", "", models.AuthNone, true),
		Entry("none", "none", models.AuthNone, true),
		Entry("anon key", "anon_key", models.AuthAnonKey, true),
		Entry("service key", "service_key", models.AuthServiceKey, true),
		Entry("unknown", "mtls", models.AuthRequirement(""), false),
	)

	It("should map requirements to credential names", func() {
		Expect(models.AuthNone.CredentialName()).To(BeEmpty())
		Expect(models.AuthAnonKey.CredentialName()).To(Equal("anon_key"))
		Expect(models.AuthServiceKey.CredentialName()).To(Equal("service_key"))
	})
})

var _ = Describe("TestPlan", func() {
	plan := models.TestPlan{
		Phases: [][]models.ServiceCheck{
			{
				{
					Name: "db",
					Probes: []models.Probe{
						{ID: "db-1", Auth: models.AuthServiceKey},
						{ID: "db-2", Auth: models.AuthServiceKey},
					},
				},
				{
					Name:   "storage",
					Probes: []models.Probe{{ID: "st-1", Auth: models.AuthNone}},
				},
			},
			{
				{
					Name: "gateway",
					Kind: models.CheckKindGateway,
					Probes: []models.Probe{
						{ID: "gw-1", Auth: models.AuthAnonKey},
					},
				},
			},
		},
	}

	It("should count probes across phases", func() {
		Expect(plan.ProbeCount()).To(Equal(4))
	})

	It("should collect the distinct credentials the probes need", func() {
		Expect(plan.CredentialNames()).To(ConsistOf("service_key", "anon_key"))
	})
})

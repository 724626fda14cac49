package proxyscan

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config.Redacted", func() {
	var cfg Config

	BeforeEach(func() {
		cfg = defaults
		cfg.SecretKey = "s3cr3t"
		cfg.DatabaseURL = "mysql://scan:pw@db:3306/scan"
		cfg.CacheURL = "redis://:hunter2@cache:6379/0"
	})

	It("masks the secret key and passwords", func() {
		r := cfg.Redacted()
		Expect(r.SecretKey).To(Equal("xxxxx"))
		Expect(r.DatabaseURL).To(Equal("mysql://scan:xxxxx@db:3306/scan"))
		Expect(r.CacheURL).To(Equal("redis://:xxxxx@cache:6379/0"))
	})

	It("leaves the original untouched", func() {
		cfg.Redacted()
		Expect(cfg.SecretKey).To(Equal("s3cr3t"))
		Expect(cfg.DatabaseURL).To(Equal("mysql://scan:pw@db:3306/scan"))
	})

	It("keeps unset values empty", func() {
		r := defaults.Redacted()
		Expect(r).To(Equal(defaults))
	})

	DescribeTable("redactURL",
		func(in, out string) {
			Expect(redactURL(in)).To(Equal(out))
		},
		Entry("no credentials", "redis://cache:6379/0", "redis://cache:6379/0"),
		Entry("user only", "mysql://scan@db/scan", "mysql://scan@db/scan"),
		Entry("driver dsn", "scan:pw@tcp(db:3306)/scan", "scan:xxxxx@tcp(db:3306)/scan"),
		Entry("dsn without password", "scan@tcp(db:3306)/scan", "scan@tcp(db:3306)/scan"),
		Entry("plain host", "main.curl.im", "main.curl.im"),
		Entry("bad escape in password", "mysql://scan:p%zz@db/scan", "mysql://scan:xxxxx@db/scan"),
		Entry("blank in password", "redis://:pa ss@cache:6379/0", "redis://:xxxxx@cache:6379/0"),
		Entry("unparsable without password", "mysql://scan@db/%zz", "mysql://scan@db/%zz"),
		Entry("at sign in query", "redis://cache:6379/0?client=a@b", "redis://cache:6379/0?client=a@b"),
	)
})

var _ = Describe("Config.MarshalJSON", func() {
	It("encodes the redacted view keyed by variable names", func() {
		cfg := defaults
		cfg.Debug = true
		cfg.SecretKey = "s3cr3t"

		Expect(json.Marshal(cfg)).To(MatchJSON(`{
			"DEBUG": true,
			"SECRET_KEY": "xxxxx",
			"DATABASE_URL": "",
			"REDIS_URL": "",
			"NODE_ROLE": "worker",
			"WORKER_ID": "1",
			"MASTER_URL": "main.curl.im",
			"SCAN_BATCH_SIZE": 100,
			"PROXY_CHECK_TIMEOUT": 10
		}`))
	})
})

var _ = Describe("Config.WriteYAML", func() {
	It("writes the redacted view", func() {
		cfg := defaults
		cfg.SecretKey = "s3cr3t"
		cfg.ScanBatchSize = 250

		var buf bytes.Buffer
		Expect(cfg.WriteYAML(&buf)).To(Succeed())

		var out map[string]any
		Expect(yaml.Unmarshal(buf.Bytes(), &out)).To(Succeed())
		Expect(out).To(HaveKeyWithValue("SECRET_KEY", "xxxxx"))
		Expect(out).To(HaveKeyWithValue("SCAN_BATCH_SIZE", 250))
		Expect(out).To(HaveKeyWithValue("NODE_ROLE", "worker"))
		Expect(out).To(HaveKeyWithValue("DEBUG", false))
		Expect(buf.String()).NotTo(ContainSubstring("s3cr3t"))
	})
})

package credentials_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vincenthz/ThinkMate/pkg/config"
	"github.com/vincenthz/ThinkMate/pkg/credentials"
)

var _ = Describe("Manager", func() {
	var (
		tmpDir string
		mgr    *credentials.Manager
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "credentials-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)

		mgr, err = credentials.NewManager(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("NewManager", func() {
		It("targets credentials.toml in the override directory", func() {
			Expect(mgr.GetTarget()).To(Equal(filepath.Join(tmpDir, "credentials.toml")))
		})
	})

	Describe("Load", func() {
		It("returns empty credentials when no file exists", func() {
			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Backends).To(BeEmpty())
		})

		It("loads existing credentials", func() {
			data := `version = 0

[backends."api.openai.com"]
api_key = "sk-test-key"
`
			Expect(os.WriteFile(mgr.GetTarget(), []byte(data), 0o600)).To(Succeed())

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Backends).To(HaveKeyWithValue("api.openai.com", credentials.BackendCredential{APIKey: "sk-test-key"}))
		})

		It("returns error for malformed TOML", func() {
			Expect(os.WriteFile(mgr.GetTarget(), []byte("[[[not toml"), 0o600)).To(Succeed())

			_, err := mgr.Load()
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Save", func() {
		It("persists credentials with restricted permissions", func() {
			Expect(mgr.SetKey("https://api.openai.com", "sk-test")).To(Succeed())

			info, err := os.Stat(mgr.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("returns error for nil credentials", func() {
			Expect(mgr.Save(nil)).To(HaveOccurred())
		})
	})

	Describe("keys", func() {
		It("stores keys per host", func() {
			Expect(mgr.SetKey("https://api.openai.com/v1", "sk-openai")).To(Succeed())
			Expect(mgr.SetKey("http://localhost:8000", "sk-local")).To(Succeed())

			key, err := mgr.GetKey("https://API.openai.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sk-openai"))

			key, err = mgr.GetKey("localhost:8000")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sk-local"))

			hosts, err := mgr.ListHosts()
			Expect(err).NotTo(HaveOccurred())
			Expect(hosts).To(Equal([]string{"api.openai.com", "localhost:8000"}))
		})

		It("overwrites an existing key", func() {
			Expect(mgr.SetKey("api.openai.com", "sk-old")).To(Succeed())
			Expect(mgr.SetKey("api.openai.com", "sk-new")).To(Succeed())

			key, err := mgr.GetKey("api.openai.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sk-new"))
		})

		It("returns an empty key for an unknown host", func() {
			key, err := mgr.GetKey("example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(BeEmpty())
		})

		It("removes a key and treats a missing one as removed", func() {
			Expect(mgr.SetKey("api.openai.com", "sk-test")).To(Succeed())
			Expect(mgr.RemoveKey("api.openai.com")).To(Succeed())
			Expect(mgr.RemoveKey("api.openai.com")).To(Succeed())

			hosts, err := mgr.ListHosts()
			Expect(err).NotTo(HaveOccurred())
			Expect(hosts).To(BeEmpty())
		})

		It("rejects an empty target", func() {
			Expect(mgr.SetKey("  ", "sk-test")).To(HaveOccurred())
		})
	})
})

var _ = Describe("HostKey", func() {
	It("normalises URLs to host and port", func() {
		Expect(credentials.HostKey("https://API.OpenAI.com/v1")).To(Equal("api.openai.com"))
		Expect(credentials.HostKey("http://127.0.0.1:8080")).To(Equal("127.0.0.1:8080"))
		Expect(credentials.HostKey("gpu-box:11434")).To(Equal("gpu-box:11434"))
	})
})

var _ = Describe("ResolveAPIKey", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "credentials-resolve-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)
	})

	backend := config.BackendConfig{Provider: "openai", Target: "https://api.openai.com"}

	It("prefers an explicit key", func() {
		c := backend
		c.APIKey = "sk-explicit"
		Expect(credentials.ResolveAPIKey(c, tmpDir)).To(Equal("sk-explicit"))
	})

	It("uses the key stored for the target", func() {
		mgr, err := credentials.NewManager(tmpDir)
		Expect(err).NotTo(HaveOccurred())
		Expect(mgr.SetKey("api.openai.com", "sk-stored")).To(Succeed())

		Expect(credentials.ResolveAPIKey(backend, tmpDir)).To(Equal("sk-stored"))
	})

	It("falls back to OPENAI_API_KEY", func() {
		GinkgoT().Setenv(credentials.EnvAPIKey, "sk-env")
		Expect(credentials.ResolveAPIKey(backend, tmpDir)).To(Equal("sk-env"))
	})

	It("returns no key for ollama", func() {
		GinkgoT().Setenv(credentials.EnvAPIKey, "sk-env")
		c := config.BackendConfig{Provider: "ollama", Target: "http://localhost:11434"}
		Expect(credentials.ResolveAPIKey(c, tmpDir)).To(BeEmpty())
	})
})

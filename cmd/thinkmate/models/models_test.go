package modelscmder_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"

	modelscmder "github.com/vincenthz/ThinkMate/cmd/thinkmate/models"
)

var _ = Describe("NewModelsCmd", func() {
	var (
		configDir string
		out       *bytes.Buffer
	)

	run := func(args ...string) error {
		root := &cobra.Command{Use: "thinkmate"}
		root.PersistentFlags().String("config-dir", "", "Override path to .thinkmate/ config directory")
		root.AddCommand(modelscmder.NewModelsCmd())

		root.SetArgs(append(append([]string{"models"}, args...), "--config-dir", configDir))
		root.SetOut(out)
		root.SetErr(&bytes.Buffer{})
		return root.Execute()
	}

	BeforeEach(func() {
		var err error
		configDir, err = os.MkdirTemp("", "thinkmate-models-test-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, configDir)
		out = &bytes.Buffer{}
	})

	It("registers the backend flags", func() {
		cmd := modelscmder.NewModelsCmd()
		for _, name := range []string{"provider", "target", "model"} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})

	It("lists the models an ollama server serves and marks the configured one", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			Expect(r.URL.Path).To(Equal("/api/tags"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"models":[
				{"name":"llama3.2","size":2019393189,"details":{"family":"llama"}},
				{"name":"qwen2.5:7b","size":4683087332,"details":{"family":"qwen2"}}
			]}`))
		}))
		DeferCleanup(server.Close)

		Expect(run("--target", server.URL, "--model", "llama3.2")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("llama3.2"))
		Expect(out.String()).To(ContainSubstring("qwen2.5:7b"))
		Expect(out.String()).To(ContainSubstring("1.9 GB"))
		Expect(out.String()).NotTo(ContainSubstring("is not served"))
	})

	It("warns when the configured model is not served", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3.2"}]}`))
		}))
		DeferCleanup(server.Close)

		Expect(run("--target", server.URL, "--model", "mistral")).To(Succeed())
		Expect(out.String()).To(ContainSubstring(`configured model "mistral" is not served`))
	})

	It("fails when the backend is unreachable", func() {
		server := httptest.NewServer(http.NotFoundHandler())
		url := server.URL
		server.Close()

		err := run("--target", url)
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unreachable"))
	})
})

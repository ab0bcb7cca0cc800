package dotdir_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vincenthz/ThinkMate/pkg/dotdir"
)

var _ = Describe("dotdir.Manager session", func() {
	var tmpDir string
	var m *dotdir.Manager

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		m = dotdir.NewManager()
	})

	Describe("LoadSession", func() {
		It("returns nil when no session file exists", func() {
			state, err := m.LoadSession(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(state).To(BeNil())
		})

		It("returns error for invalid JSON", func() {
			Expect(os.WriteFile(filepath.Join(tmpDir, "session.json"), []byte("not json"), 0o600)).To(Succeed())

			state, err := m.LoadSession(tmpDir)
			Expect(err).To(HaveOccurred())
			Expect(state).To(BeNil())
		})
	})

	Describe("SaveSession", func() {
		It("round trips the session state", func() {
			Expect(m.SaveSession(&dotdir.SessionState{ActiveID: "abc", Model: "gemma3"}, tmpDir)).To(Succeed())

			loaded, err := m.LoadSession(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(loaded.ActiveID).To(Equal("abc"))
			Expect(loaded.Model).To(Equal("gemma3"))
		})

		It("returns error for nil state", func() {
			Expect(m.SaveSession(nil, tmpDir)).To(HaveOccurred())
		})
	})

	Describe("ClearSession", func() {
		It("removes the session file", func() {
			Expect(m.SaveSession(&dotdir.SessionState{ActiveID: "abc"}, tmpDir)).To(Succeed())
			Expect(m.ClearSession(tmpDir)).To(Succeed())

			_, err := os.Stat(filepath.Join(tmpDir, "session.json"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("is a no-op when nothing is saved", func() {
			Expect(m.ClearSession(tmpDir)).To(Succeed())
		})
	})
})

package thinkmatecmder_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	thinkmatecmder "github.com/vincenthz/ThinkMate/cmd/thinkmate"
)

var _ = Describe("NewThinkmateCmd", func() {
	It("registers every subcommand", func() {
		cmd := thinkmatecmder.NewThinkmateCmd()
		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("init", "chat", "history", "models", "config", "auth", "version"))
	})

	It("has the global --debug and --config-dir flags", func() {
		cmd := thinkmatecmder.NewThinkmateCmd()

		debug := cmd.PersistentFlags().Lookup("debug")
		Expect(debug).NotTo(BeNil())
		Expect(debug.Shorthand).To(Equal("d"))

		Expect(cmd.PersistentFlags().Lookup("config-dir")).NotTo(BeNil())
	})
})

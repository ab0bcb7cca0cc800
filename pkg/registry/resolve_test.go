package registry_test

import (
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/vincenthz/ThinkMate/pkg/registry"
	"github.com/vincenthz/ThinkMate/pkg/storage"
)

var _ = Describe("Resolve", func() {
	entries := []storage.Entry{
		{ID: "0195aaaa-1111", Title: "first"},
		{ID: "0195aaab-2222", Title: "second"},
		{ID: "0196cccc-3333", Title: "third"},
	}

	It("accepts a 1-based position", func() {
		e, err := registry.Resolve(entries, "2")
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Title).To(Equal("second"))
	})

	It("accepts a full id", func() {
		e, err := registry.Resolve(entries, "0196cccc-3333")
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Title).To(Equal("third"))
	})

	It("accepts a unique prefix", func() {
		e, err := registry.Resolve(entries, "0196")
		Expect(err).NotTo(HaveOccurred())
		Expect(e.Title).To(Equal("third"))
	})

	It("rejects an ambiguous prefix", func() {
		_, err := registry.Resolve(entries, "0195aaa")
		Expect(errors.Is(err, registry.ErrAmbiguous)).To(BeTrue())
	})

	It("reports unknown references as not found", func() {
		_, err := registry.Resolve(entries, "ffff")
		Expect(storage.IsNotFound(err)).To(BeTrue())

		_, err = registry.Resolve(entries, "9")
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("requires a reference", func() {
		_, err := registry.Resolve(entries, " ")
		Expect(err).To(HaveOccurred())
	})
})

package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/o3sim/emu"
)

var _ = Describe("Memory", func() {
	var memory *emu.Memory

	BeforeEach(func() {
		var err error
		memory, err = emu.NewMemory(1024)
		Expect(err).ToNot(HaveOccurred())
	})

	Describe("construction", func() {
		It("should reject a size below the minimum", func() {
			_, err := emu.NewMemory(64)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a size above the maximum", func() {
			_, err := emu.NewMemory(8 * 1024 * 1024)
			Expect(err).To(HaveOccurred())
		})

		It("should reject a size that is not a power of two", func() {
			_, err := emu.NewMemory(1000)
			Expect(err).To(HaveOccurred())
		})

		It("should accept the minimum and maximum sizes", func() {
			small, err := emu.NewMemory(emu.MinMemorySize)
			Expect(err).ToNot(HaveOccurred())
			Expect(small.Size()).To(Equal(uint64(emu.MinMemorySize)))

			large, err := emu.NewMemory(emu.MaxMemorySize)
			Expect(err).ToNot(HaveOccurred())
			Expect(large.Size()).To(Equal(uint64(emu.MaxMemorySize)))
		})
	})

	It("should start zeroed", func() {
		data, err := memory.Read(0, 16)
		Expect(err).ToNot(HaveOccurred())
		Expect(data).To(Equal(make([]byte, 16)))
	})

	It("should read back written bytes", func() {
		Expect(memory.Write(100, []byte{1, 2, 3, 4})).To(Succeed())

		data, err := memory.Read(100, 4)
		Expect(err).ToNot(HaveOccurred())
		Expect(data).To(Equal([]byte{1, 2, 3, 4}))
	})

	It("should read and write single bytes", func() {
		Expect(memory.WriteByte(7, 0xAB)).To(Succeed())

		b, err := memory.ReadByte(7)
		Expect(err).ToNot(HaveOccurred())
		Expect(b).To(Equal(byte(0xAB)))
	})

	It("should store words little-endian", func() {
		Expect(memory.WriteWord(10, 0x1234)).To(Succeed())

		b, err := memory.Read(10, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(b).To(Equal([]byte{0x34, 0x12}))

		w, err := memory.ReadWord(10)
		Expect(err).ToNot(HaveOccurred())
		Expect(w).To(Equal(uint16(0x1234)))
	})

	It("should return a copy, not a view", func() {
		Expect(memory.Write(0, []byte{1, 2})).To(Succeed())

		data, err := memory.Read(0, 2)
		Expect(err).ToNot(HaveOccurred())

		data[0] = 99
		again, err := memory.Read(0, 2)
		Expect(err).ToNot(HaveOccurred())
		Expect(again[0]).To(Equal(byte(1)))
	})

	Describe("bounds checking", func() {
		It("should reject a read past the end", func() {
			_, err := memory.Read(1020, 8)
			Expect(err).To(MatchError(emu.ErrOutOfBounds))
		})

		It("should reject a write past the end", func() {
			err := memory.Write(1023, []byte{1, 2})
			Expect(err).To(MatchError(emu.ErrOutOfBounds))
		})

		It("should reject an out-of-range address", func() {
			_, err := memory.ReadByte(1024)
			Expect(err).To(MatchError(emu.ErrOutOfBounds))
		})

		It("should allow an access ending exactly at the size", func() {
			Expect(memory.Write(1022, []byte{1, 2})).To(Succeed())
		})

		It("should reject an address whose range wraps around", func() {
			_, err := memory.Read(^uint64(0)-1, 4)
			Expect(err).To(MatchError(emu.ErrOutOfBounds))

			err = memory.Write(^uint64(0), []byte{1})
			Expect(err).To(MatchError(emu.ErrOutOfBounds))
		})
	})

	It("should zero everything on Clear", func() {
		Expect(memory.Write(50, []byte{1, 2, 3})).To(Succeed())

		memory.Clear()

		data, err := memory.Read(50, 3)
		Expect(err).ToNot(HaveOccurred())
		Expect(data).To(Equal([]byte{0, 0, 0}))
	})
})

//go:build mips64 || mips64le

package mmap

// MaxSize is the largest region size on MIPS64.
const MaxSize = 1 << 39

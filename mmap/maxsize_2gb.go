//go:build 386 || arm || ppc

package mmap

// MaxSize is the largest region size on 32-bit platforms.
const MaxSize = 1<<31 - 1

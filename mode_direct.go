//go:build !vectored

package rvhal

const buildMode = ModeDirect

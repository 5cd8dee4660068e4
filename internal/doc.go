// Package internal holds crypto-random helpers shared by the medauth root
// package: numeric one-time codes and token digests used as Redis keys.
package internal

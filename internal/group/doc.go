// Package group provides the prime-order group used by every proof system in
// this module: scalars and points of secp256k1, their canonical encodings,
// domain-separated hashing into both, and multi-scalar multiplication.
//
// Arithmetic is delegated to gnark-crypto. Hashing to scalars uses a
// personalised BLAKE2b; hashing to the curve uses the SVDW random-oracle map,
// so generators produced by HashToPoint have no known discrete-log relation.
package group

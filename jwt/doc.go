// Package jwt encodes and decodes the signed three-segment tokens issued by goToken.
//
// The codec is pure: it signs claims it is given and verifies signature, algorithm,
// key id and time claims on the way back in. It never touches storage.
package jwt

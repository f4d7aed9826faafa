// Package tokens builds and inspects goToken credentials on top of the jwt codec.
//
// Factory mints ACCESS, REFRESH and ONE_TIME tokens from one settings struct per token
// class. Validator verifies them and exposes strict, typed claim accessors.
// Neither type performs I/O; persistence belongs to the records package.
package tokens

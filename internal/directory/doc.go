// Package directory provides a static, file-backed goToken.Directory for the
// server binary and examples. Real deployments plug in their account service.
package directory

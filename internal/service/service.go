// Package service implements the caller-facing API on top of biz.
package service

import "github.com/google/wire"

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewAIService)

package hash

// Quantize exposes quantize for testing
var Quantize = quantize

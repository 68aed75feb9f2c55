// Package archive defines the core types shared by the archive resolution engine: the normalized
// target URL, the provider link pair, lookup and submission outcomes, the final result returned
// to callers, and the error taxonomy used to classify provider failures.
package archive

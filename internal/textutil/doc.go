// Package textutil provides text processing utilities for fingerprinting,
// similarity, and name comparison.
//
// The primary use cases are:
//   - Creating token-based fingerprints from candidate descriptors
//   - Computing cosine similarity between fingerprints
//   - Comparing person names independent of punctuation and case
//   - Bounding captions and summaries by rune count
//
// Fingerprints use term frequency vectors normalized for efficient comparison.
// The tokenization process lowercases text, splits on anything that is not a
// letter or digit, and filters tokens shorter than 3 characters.
package textutil

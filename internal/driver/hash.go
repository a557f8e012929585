package driver

import "crypto/sha256"

// Digest is a SHA-256 content hash.
type Digest [32]byte

func hashContent(data []byte) Digest {
	return sha256.Sum256(data)
}

// combineDigest: H(content || extra1 || extra2 ...). Extras must already be in
// a deterministic order.
func combineDigest(content Digest, extras ...[]byte) Digest {
	h := sha256.New()
	h.Write(content[:])
	for _, e := range extras {
		h.Write(e)
	}
	var out Digest
	copy(out[:], h.Sum(nil))
	return out
}

// cacheKey derives the disk cache key for an input file from its content and
// the options that influence the produced output.
func cacheKey(content []byte, opts Options) Digest {
	return combineDigest(hashContent(content), []byte(opts.fingerprint()))
}

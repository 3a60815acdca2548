package reasoning

import "errors"

var (
	errMaxResults  = errors.New("max_results must be > 0")
	errThreshold   = errors.New("threshold must be in [0,1]")
	errUnknownMode = errors.New("unknown reasoning mode")
)

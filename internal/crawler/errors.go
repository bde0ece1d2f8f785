package crawler

import "errors"

// ErrPolicyDenied marks a fetch abandoned because robots.txt disallows the
// path. It is never retried and never fatal to the surrounding request.
var ErrPolicyDenied = errors.New("robots policy denied")

package model

import "github.com/prism-dag/prismd/domain/consensus/model/externalapi"

// BlockRequester is implemented by the network layer. The consensus calls
// RequestMissing for every dependency of an orphan block that it has
// never seen.
type BlockRequester interface {
	RequestMissing(hash *externalapi.DomainHash)
}

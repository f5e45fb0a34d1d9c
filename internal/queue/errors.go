package queue

import "errors"

var (
	errNotYetDeployed      = errors.New("queue: wallet not yet observed as deployed")
	errMessageNotObserved  = errors.New("queue: expected message hash not yet observed on chain")
	errDestinationMismatch = errors.New("queue: transaction has no out_msg addressed to the expected destination")
)

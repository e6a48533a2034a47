// Package settlement turns payment obligations into outgoing transactions.
//
// Settlement runs in two stages per block height. Stage A aggregates the
// related payments of the block's requests and opens a Record holding them
// as unpaid; the book is persisted before the chain state advances. Stage B
// drains the unpaid set in batches of at most MaxBatch recipients, each
// batch also paying the height to the payment-log address so the ledger of
// payouts can be reconstructed from the chain.
//
// A batch is persisted as pending before it is handed to the Sender and
// moved to paid afterwards. A pending batch found on startup means the
// process stopped between the two writes; whether the batch was broadcast
// cannot be known locally, so Drain refuses to continue until an operator
// resolves it.
package settlement

// Package escrow groups the escrow contract domain: the contract record and
// release outcomes (domain), the storage and wallet ports the domain depends
// on (ports), release secret policies (policy), and the create/inspect/release
// workflows (usecase).
//
// Responsibilities:
// - Bind every contract to a freshly provisioned receiving subaddress.
// - Gate fund release on the contract secret and the minimum unlocked balance.
// - Guarantee that a contract's funds are swept at most once.
//
// Non-responsibilities:
// - JSON-RPC/HTTP protocol handling and rendering of views.
package escrow

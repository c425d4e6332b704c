// Package repository provides a generic Bun repository for models defined on
// an orm instance: CRUD, filtered queries, pagination, upsert and
// transactions. It works on any bun.IDB, so the same code runs on a *bun.DB
// or inside a bun.Tx.
package repository

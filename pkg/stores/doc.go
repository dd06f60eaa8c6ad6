// Package stores persists director state in SQLite: the director UUID sent
// to every CPI and a journal of CPI calls.
package stores

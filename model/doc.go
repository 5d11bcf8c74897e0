// Package model defines the core data types shared by every kvsearch package:
// row identities, typed column values, search hits and the error taxonomy.
package model

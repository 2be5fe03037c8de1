// Copyright 2020 New Relic Corporation. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

// Package datastore names the datastore products used in datastore segment
// metrics.
package datastore

import "strings"

// Product encourages consistent metrics across New Relic agents.  You may
// create your own if your datastore is not listed below.
type Product string

// Relational products.
const (
	Derby    Product = "Derby"
	Firebird Product = "Firebird"
	IBMDB2   Product = "IBMDB2"
	Informix Product = "Informix"
	MySQL    Product = "MySQL"
	MSSQL    Product = "MSSQL"
	Oracle   Product = "Oracle"
	Postgres Product = "Postgres"
	SQLite   Product = "SQLite"
	VoltDB   Product = "VoltDB"
)

// Document, key-value and search products.
const (
	Cassandra     Product = "Cassandra"
	CouchDB       Product = "CouchDB"
	DynamoDB      Product = "DynamoDB"
	Elasticsearch Product = "Elasticsearch"
	Memcached     Product = "Memcached"
	MongoDB       Product = "MongoDB"
	Redis         Product = "Redis"
	Riak          Product = "Riak"
	Solr          Product = "Solr"
)

// Unknown is used when no product is given.
const Unknown Product = "Unknown"

var driverProducts = map[string]Product{
	"postgres":  Postgres,
	"pgx":       Postgres,
	"mysql":     MySQL,
	"sqlite3":   SQLite,
	"sqlite":    SQLite,
	"sqlserver": MSSQL,
	"mssql":     MSSQL,
	"oracle":    Oracle,
	"godror":    Oracle,
	"mongodb":   MongoDB,
	"redis":     Redis,
}

// ProductFromDriver returns the product of a database/sql driver or
// connection scheme name, e.g. "pgx" or "mysql".  Unknown is returned for
// names it does not recognize.
func ProductFromDriver(name string) Product {
	if p, ok := driverProducts[strings.ToLower(name)]; ok {
		return p
	}
	return Unknown
}

// Package presto is a client for Presto and Trino coordinators, together with
// a database/sql driver and a decoder for nested result values.
//
// # Queries
//
//	client, err := presto.NewClient("http://presto-coordinator:8080")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	session := client.NewSession().Catalog("hive").Schema("default")
//	results, _, err := session.Query(ctx, "SELECT * FROM my_table")
//
// Sessions carry catalog, schema, user, transaction state and session
// properties. They are safe for concurrent use; Clone derives a new one.
//
// # Decoding
//
// Rows arrive as JSON arrays whose cells follow the column types: arrays as
// JSON arrays, maps as JSON objects with string keys, rows as JSON arrays of
// field values and varbinary as base64 text. A RowDecoder built from the
// column type signatures turns them into Go values:
//
//	err = results.Drain(ctx, func(qr *presto.QueryResults) error {
//	    rows, err := qr.DecodedData()
//	    if err != nil {
//	        return err
//	    }
//	    for _, row := range rows {
//	        // row[i] is []any, map[any]any, map[string]any, []byte or a
//	        // JSON scalar, with numbers as json.Number.
//	    }
//	    return nil
//	})
//
// Map keys are converted to int64, float64, VarbinaryKey or string according
// to the key type. Row values become maps keyed by field name; anonymous
// fields are named field0, field1 and so on. A row whose width differs from
// the column count yields a *DataError.
//
// Both type signature encodings are understood: the current one, where
// nested types are "arguments", and the older one using "typeArguments" and
// "literalArguments". Decoders can also be built directly:
//
//	sig, err := presto.ParseTypeSignature("map(bigint, array(varbinary))")
//	decoder, err := presto.BuildCellDecoder(sig)
//	value, err := decoder.Decode(rawCell)
//
// # database/sql
//
// The driver registers as "presto":
//
//	db, err := sql.Open("presto", "presto://user@host:8080/hive/default")
//
// ARRAY, MAP and ROW columns are returned as JSON text; scan them with
// NullSlice, NullMap and NullRow.
//
// # Authentication
//
// Package prestoauth adds OAuth2 and Kerberos to the driver through extra DSN
// parameters such as access_token and kerberos_keytab.
//
// # Trino
//
// client.IsTrino(true), or a trino:// DSN, switches to X-Trino-* headers.
package presto

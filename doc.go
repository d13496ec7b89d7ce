// Package lake holds the pieces the Sparkify ETL job is assembled from: the
// interfaces its stages talk through, object selection and staging, and the
// stage runner. Storage back-ends, file formats, the query engine and the
// job itself live in sub-packages.
//
// A run moves data through the following stages.
//
// 1. Store
//
//    A lake.Store is a blob store rooted at a URI prefix: a local directory
//    (package file) or an S3 bucket and prefix (package aws/s3). Inputs are
//    selected with glob patterns evaluated one path segment at a time; a
//    pattern naming a directory selects everything beneath it, and files
//    whose name begins with "_" or "." are never treated as data.
//
// 2. Ingester
//
//    The Ingester fetches every object matching a glob, decodes each into
//    records with a Source (package json) and stages them locally as
//    newline delimited JSON. Fetching runs concurrently but staged files are
//    numbered in key order so that a run is repeatable.
//
// 3. Engine
//
//    Package duck loads the staged files into an embedded DuckDB with
//    schema-on-read: the union of all fields, with missing fields NULL.
//    Table rules are SQL run against the loaded data.
//
// 4. Writer
//
//    Query results are written as Parquet, optionally partitioned into
//    name=value directories, by package parquet, which can also load a
//    partitioned table back into the engine. Every write replaces what was
//    there.
package lake

// Package importer implements the CSV import pipeline.
//
// An [Importer] reads CSV text one row at a time, turns each row into a
// typed row model, runs every configured [Validator] against it, maps
// passing rows into entities, and hands the whole batch to a [Store] in a
// single persist step. Row problems never escape as errors: they are
// collected as [CsvError] values in the returned [ImportResult], and any
// of them rolls the batch back.
//
// # Pipeline
//
//  1. Reject bad extra column values if the mapper is an [ExtraChecker]
//  2. Begin a transaction if the store supports one
//  3. Wrap the input with [WrapForStreaming] (BOM skip, UTF-8 sanitize, byte count)
//  4. For each row: classify parse failures, run validators, map if persisting
//  5. Persist the batch once, only when no row failed
//  6. Commit on success, roll back on row errors
//
// # Error Taxonomy
//
// Parse failures are turned into CsvErrors by a [Classifier] chain.
// [DefaultClassifier] recognizes format errors ("Invalid format detected.")
// and structural parser errors ("Missing fields in the CSV file."); anything
// else becomes "Unhandled exception: <message>". [LegacyClassifier] is the
// older single handler ending in "An unknown error occurred.".
//
// A mapper error wrapping [ErrInvalidFormat] is a row problem too.
//
// Other failures outside the row loop's control (store, mapper, I/O,
// cancellation) abort the import. The transaction is rolled back and an
// [*AbortError] is returned; errors.Is(err, [ErrAborted]) reports true.
//
// # Example
//
//	im, err := importer.New[ContactRow, Contact](store, mapper.NewFieldMapper[ContactRow, Contact](), logger)
//	if err != nil {
//	    return err
//	}
//	result, err := im.ProcessCSV(ctx, file, map[string]any{"source": "crm"}, false)
//	if err != nil {
//	    return err // import could not complete
//	}
//	for _, e := range result.Errors() {
//	    fmt.Println(e) // row 2: Email is not a valid e-mail address.
//	}
package importer

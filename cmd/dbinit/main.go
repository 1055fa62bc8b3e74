// Command dbinit brings the classroom platform database to a schema-ready
// state: it waits for PostgreSQL, applies pending migrations and creates any
// declared table that is still missing.
package main

func main() {
	Execute()
}

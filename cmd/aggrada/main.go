// Command aggrada ingests tabular files into spatio-temporal observations.
package main

func main() {
	Execute()
}

// Command vetoscope scrapes vlr.gg map vetoes for a team and aggregates
// its pick and ban tendencies.
package main

func main() {
	Execute()
}

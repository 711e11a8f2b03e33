// cfdi valida comprobantes fiscales desde la línea de comandos.
package main

import "github.com/jhoicas/cfdi-validator/internal/cli"

func main() {
	cli.Execute()
}

package tef

import "fmt"

// declineMessages is the fixed dictionary of §6: a terminal response code
// (field 48) other than "00" maps to a human-readable Spanish message.
var declineMessages = map[string]string{
	"01": "Comuníquese con el emisor",
	"02": "Comuníquese con el emisor",
	"03": "Comercio no registrado",
	"04": "Retener tarjeta",
	"07": "Retener tarjeta",
	"05": "No honrar",
	"06": "Error",
	"96": "Error",
	"12": "Transacción inválida",
	"13": "Monto inválido",
	"14": "Tarjeta inválida",
	"15": "Emisor inválido",
	"19": "Reintentar",
	"30": "Error de formato",
	"41": "Tarjeta perdida",
	"43": "Tarjeta robada",
	"51": "Fondos insuficientes",
	"54": "Tarjeta expirada",
	"55": "PIN inválido",
	"57": "No permitido",
	"58": "No permitido",
	"59": "Sospecha de fraude",
	"61": "Excede el límite",
	"65": "Excede el límite",
	"62": "Tarjeta restringida",
	"63": "Violación de seguridad",
	"75": "Intentos de PIN excedidos",
	"76": "Original no encontrado",
	"77": "Monto no coincide",
	"78": "No existe tal cuenta",
	"85": "Sin motivo para declinar",
	"91": "Emisor no disponible",
	"92": "Destino inalcanzable",
	"93": "No se puede completar",
	"94": "Duplicado",
	"99": "Problema de comunicación",
}

// DeclineMessage returns the fixed human-readable message for a decline
// code, or a formatted "unknown code" message for anything not in the
// dictionary. Code "00" (approved) is not represented here by design.
func DeclineMessage(code string) string {
	if msg, ok := declineMessages[code]; ok {
		return msg
	}
	return fmt.Sprintf("Código desconocido: %s", code)
}

package sri

import (
	"fmt"
	"strings"
)

// coeficientes del módulo 10 para cédula ecuatoriana (registro civil).
var cedulaWeights = [9]int{2, 1, 2, 1, 2, 1, 2, 1, 2}

// ValidateCedula valida una cédula de 10 dígitos: provincia 01-24 (o 30 para
// ecuatorianos en el exterior), tercer dígito menor a 6 y dígito verificador módulo 10.
func ValidateCedula(id string) error {
	id = strings.TrimSpace(id)
	if len(id) != 10 || !isDigits(id) {
		return fmt.Errorf("sri: cédula debe tener 10 dígitos, se recibió %q", id)
	}
	province := int(id[0]-'0')*10 + int(id[1]-'0')
	if (province < 1 || province > 24) && province != 30 {
		return fmt.Errorf("sri: código de provincia %02d inválido en cédula", province)
	}
	if id[2]-'0' >= 6 {
		return fmt.Errorf("sri: tercer dígito de cédula de persona natural debe ser menor a 6")
	}
	sum := 0
	for i, w := range cedulaWeights {
		p := int(id[i]-'0') * w
		if p > 9 {
			p -= 9
		}
		sum += p
	}
	expected := byte('0' + (10-sum%10)%10)
	if id[9] != expected {
		return fmt.Errorf("sri: dígito verificador de cédula inválido: esperado %c, recibido %c", expected, id[9])
	}
	return nil
}

// ValidateRUC exige 13 dígitos y un código de establecimiento distinto de 000.
// No verifica el dígito de sociedades: el SRI es la fuente de verdad del registro.
func ValidateRUC(ruc string) error {
	ruc = strings.TrimSpace(ruc)
	if len(ruc) != 13 || !isDigits(ruc) {
		return fmt.Errorf("sri: el RUC debe tener exactamente 13 dígitos, se recibió %q", ruc)
	}
	if ruc[10:] == "000" {
		return fmt.Errorf("sri: RUC %s con establecimiento 000", ruc)
	}
	return nil
}

// BuyerIdentificationType decide el código de tipo de identificación del comprador.
// declared es el tipo registrado en el cliente ("RUC", "CEDULA", "PASAPORTE", "CONSUMIDOR_FINAL");
// si viene vacío se infiere por la forma del número.
func BuyerIdentificationType(declared, identification string) string {
	identification = strings.TrimSpace(identification)
	switch strings.ToUpper(strings.TrimSpace(declared)) {
	case "RUC":
		return BuyerIDTypeRUC
	case "CEDULA", "CÉDULA":
		return BuyerIDTypeCedula
	case "PASAPORTE":
		return BuyerIDTypePasaporte
	case "EXTERIOR":
		return BuyerIDTypeExterior
	case "CONSUMIDOR_FINAL", "CONSUMIDOR FINAL":
		return BuyerIDTypeConsumidor
	}
	switch {
	case identification == "" || identification == FinalConsumerID:
		return BuyerIDTypeConsumidor
	case ValidateRUC(identification) == nil:
		return BuyerIDTypeRUC
	case ValidateCedula(identification) == nil:
		return BuyerIDTypeCedula
	}
	return BuyerIDTypePasaporte
}

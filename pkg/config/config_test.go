package config_test

import (
	"testing"

	"github.com/jhoicas/facturacion-sri/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func perfilCompleto() config.SRIConfig {
	return config.SRIConfig{
		Environment:     1,
		RUC:             "1790011674001",
		BusinessName:    "DISTRIBUIDORA EJEMPLO S.A.",
		MainAddress:     "Av. Amazonas N34-451, Quito",
		Establishment:   "001",
		EmissionPoint:   "002",
		Regime:          "GENERAL",
		StandardVATRate: 15,
		ReducedVATRate:  5,
	}
}

func TestSRIConfig_ValidateCompleto(t *testing.T) {
	assert.NoError(t, perfilCompleto().Validate())
}

func TestSRIConfig_ValidateNombraCamposFaltantes(t *testing.T) {
	c := perfilCompleto()
	c.RUC = "179001167"
	c.BusinessName = "  "
	c.EmissionPoint = "2"
	c.Environment = 3

	err := c.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, config.ErrConfigIncomplete)
	for _, field := range []string{"SRI_RUC", "SRI_RAZON_SOCIAL", "SRI_PUNTO_EMISION", "SRI_AMBIENTE"} {
		assert.Contains(t, err.Error(), field)
	}
	assert.NotContains(t, err.Error(), "SRI_DIR_MATRIZ")
}

func TestSRIConfig_RegimenDesconocido(t *testing.T) {
	c := perfilCompleto()
	c.Regime = "OTRO"
	assert.ErrorIs(t, c.Validate(), config.ErrConfigIncomplete)
}

func TestLoad_LeeVariablesDeEntorno(t *testing.T) {
	t.Setenv("SRI_RUC", "1790011674001")
	t.Setenv("SRI_AMBIENTE", "2")
	t.Setenv("SRI_OBLIGADO_CONTABILIDAD", "true")
	t.Setenv("SRI_FACTURAS_GRATIS", "25")
	t.Setenv("HTTP_PORT", "9090")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "1790011674001", cfg.SRI.RUC)
	assert.Equal(t, 2, cfg.SRI.Environment)
	assert.True(t, cfg.SRI.KeepsAccounting)
	assert.Equal(t, 25, cfg.Entitlement.FreeQuota)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.Addr())
	assert.Equal(t, "001", cfg.SRI.Establishment, "valor por defecto")
	assert.Equal(t, 7, cfg.Entitlement.GraceDays)
}

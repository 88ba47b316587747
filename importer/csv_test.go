package importer_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/importer"
)

func TestParseCSV_FrenchExport(t *testing.T) {
	// GIVEN: a semicolon export with French headers and locale amounts
	input := "\ufeffNom;Prénom;Salaire net;Salaire brut;Coût total;Charges;CA;Taux\n" +
		"Martin;Claire;1 200,00;1 550,00;1 950,00;400,00;3 000,00;50 %\n" +
		"Lefèvre;Élodie;980,5;1 250;1 600;350,25;;\n" +
		";;;;;;;\n"

	// WHEN: parsing
	res, err := importer.ParseCSV(strings.NewReader(input), importer.Options{})
	require.NoError(t, err)

	// THEN: two clean rows
	require.Empty(t, res.Errors)
	require.Len(t, res.Rows, 2)

	claire := res.Rows[0]
	assert.Equal(t, 2, claire.Line)
	assert.Equal(t, "Martin", claire.LastName)
	assert.Equal(t, "1200.00", claire.NetSalary.String())
	assert.Equal(t, "400.00", claire.Charges.String())
	require.NotNil(t, claire.GeneratedRevenue)
	assert.Equal(t, "3000.00", claire.GeneratedRevenue.String())
	require.NotNil(t, claire.TaxPercentage)
	assert.Equal(t, "50", claire.TaxPercentage.String())

	elodie := res.Rows[1]
	assert.Equal(t, "980.50", elodie.NetSalary.String())
	assert.Equal(t, "350.25", elodie.Charges.String())
	assert.Nil(t, elodie.GeneratedRevenue, "blank revenue is absent, not zero")
	assert.Nil(t, elodie.TaxPercentage)
}

func TestParseCSV_EnglishCommaSeparated(t *testing.T) {
	input := "employee_ref,last_name,first_name,net_salary,charges,tax_percentage\n" +
		`emp-7,Doe,Jane,"1,234.56",100,12.5` + "\n"

	res, err := importer.ParseCSV(strings.NewReader(input), importer.Options{})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)

	row := res.Rows[0]
	assert.Equal(t, engine.EmployeeID("emp-7"), row.EmployeeRef)
	assert.Equal(t, "1234.56", row.NetSalary.String())
	assert.True(t, row.GrossSalary.IsZero(), "missing optional column reads as zero")
	assert.Equal(t, "12.5", row.TaxPercentage.String())
}

func TestParseCSV_BadCellRejectsRowOnly(t *testing.T) {
	input := "nom;prenom;net;charges\n" +
		"Martin;Claire;douze;400\n" +
		"Durand;Paul;1000;300\n"

	res, err := importer.ParseCSV(strings.NewReader(input), importer.Options{})
	require.NoError(t, err)

	require.Len(t, res.Rows, 1)
	assert.Equal(t, "Durand", res.Rows[0].LastName)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 2, res.Errors[0].Line)
	assert.ErrorIs(t, res.Errors[0], engine.ErrInvalidAmount)
}

func TestParseCSV_MissingColumns(t *testing.T) {
	_, err := importer.ParseCSV(strings.NewReader("nom;prenom;charges\nA;B;1\n"), importer.Options{})
	assert.ErrorIs(t, err, importer.ErrMissingColumn)

	_, err = importer.ParseCSV(strings.NewReader("nom;net;charges\nA;1;1\n"), importer.Options{})
	assert.ErrorIs(t, err, importer.ErrMissingColumn)
}

func TestParseCSV_ExplicitDelimiter(t *testing.T) {
	input := "nom|prenom|net|charges\nMartin|Claire|10|2\n"
	res, err := importer.ParseCSV(strings.NewReader(input), importer.Options{Delimiter: '|'})
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "10.00", res.Rows[0].NetSalary.String())
}

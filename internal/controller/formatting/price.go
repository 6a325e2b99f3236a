package formatting

import "fmt"

// FormatPrice форматирует цену из копеек в рубли, без копеек если они равны 0
func FormatPrice(minor int64) string {
	if minor%100 == 0 {
		return fmt.Sprintf("%d ₽", minor/100)
	}
	return fmt.Sprintf("%.2f ₽", float64(minor)/100)
}
